package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	log "github.com/sirupsen/logrus"
)

type RepoFetcher interface {
	Fetch(gitURL string) (string, []error)
}

type GitFetcher struct {
	WorkDir string
}

// parseGitURL maps a repository URL into the work directory. The full
// URL path is mirrored so repos with the same name under different
// owners do not collide.
func parseGitURL(gitURL, workDir string) (string, string, error) {
	parsed, parseErr := url.Parse(gitURL)
	if parseErr != nil {
		return "", "", parseErr
	}

	urlPath := strings.TrimPrefix(strings.TrimSuffix(parsed.Path, ".git"), "/")
	if urlPath == "" {
		return "", "", fmt.Errorf("No repository path in URL: %s", gitURL)
	}

	segments := strings.Split(urlPath, "/")
	repoName := segments[len(segments)-1]
	localPath := filepath.Join(workDir, filepath.FromSlash(urlPath))
	return repoName, localPath, nil
}

// Fetch brings the checkout at the repo's work dir location up to date.
// An existing checkout is pulled; if the pull fails the checkout is
// wiped and cloned fresh.
func (g *GitFetcher) Fetch(gitURL string) (string, []error) {
	_, repoPath, parseErr := parseGitURL(gitURL, g.WorkDir)
	if parseErr != nil {
		return "", []error{fmt.Errorf("Error parsing git url: %s : %s", gitURL, parseErr)}
	}

	if _, statErr := os.Stat(repoPath); statErr == nil {
		log.Info(fmt.Sprintf("  - Pulling Repo into: %s", repoPath))
		pullErr := pullRepo(repoPath)
		if pullErr == nil {
			return repoPath, nil
		}
		log.Warn(fmt.Sprintf("Error pulling repo: %s : %s", gitURL, pullErr))
		log.Info("  - Pull failed, trying to clone instead.")
		if rmErr := os.RemoveAll(repoPath); rmErr != nil {
			return "", []error{fmt.Errorf("Error cloning repo: %s : %s", gitURL, rmErr)}
		}
	}

	log.Info(fmt.Sprintf("  - Cloning into: %s", repoPath))
	if _, cloneErr := git.PlainClone(repoPath, false, &git.CloneOptions{URL: gitURL}); cloneErr != nil {
		os.RemoveAll(repoPath)
		return "", []error{fmt.Errorf("Error cloning repo: %s : %s", gitURL, cloneErr)}
	}
	return repoPath, nil
}

func pullRepo(repoPath string) error {
	repo, openErr := git.PlainOpen(repoPath)
	if openErr != nil {
		return openErr
	}
	worktree, wtErr := repo.Worktree()
	if wtErr != nil {
		return wtErr
	}
	pullErr := worktree.Pull(&git.PullOptions{RemoteName: "origin"})
	if errors.Is(pullErr, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return pullErr
}
