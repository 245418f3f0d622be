package main

// MockRepoFetcher hands out pre-arranged checkout paths instead of
// touching git. Paths maps a repo URL to its local checkout; Errs maps a
// repo URL to the fetch errors it should fail with.
type MockRepoFetcher struct {
	Paths         map[string]string
	Errs          map[string][]error
	FetchRequests []string
}

func (f *MockRepoFetcher) Fetch(gitURL string) (string, []error) {
	f.FetchRequests = append(f.FetchRequests, gitURL)
	if errs := f.Errs[gitURL]; len(errs) > 0 {
		return "", errs
	}
	return f.Paths[gitURL], nil
}
