package index

import (
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// GitInfo is the repository metadata read from the working tree's .git.
type GitInfo struct {
	RemoteURL string
	Branch    string
	Commit    string
}

// ReadGitInfo inspects the git repository containing root. A tree that is
// not a git repository yields a zero GitInfo, not an error; indexing works
// on plain directories too.
func ReadGitInfo(root string) GitInfo {
	var info GitInfo

	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return info
	}

	remote, err := repo.Remote(git.DefaultRemoteName)
	if err == nil && len(remote.Config().URLs) > 0 {
		info.RemoteURL = remote.Config().URLs[0]
	}

	head, err := repo.Head()
	if err != nil {
		return info
	}

	info.Commit = head.Hash().String()

	if head.Name().IsBranch() {
		info.Branch = head.Name().Short()
	}

	return info
}

// FullNameFromRemote derives "owner/name" from a git remote URL, handling
// both SSH and HTTPS forms. Empty when the URL has no such shape.
func FullNameFromRemote(remoteURL string) string {
	s := strings.TrimSuffix(remoteURL, ".git")

	if _, rest, ok := strings.Cut(s, "git@"); ok {
		// git@host:owner/name
		_, path, found := strings.Cut(rest, ":")
		if found {
			return ownerName(path)
		}
	}

	for _, scheme := range []string{"https://", "http://", "ssh://"} {
		if rest, ok := strings.CutPrefix(s, scheme); ok {
			// host/owner/name
			_, path, found := strings.Cut(rest, "/")
			if found {
				return ownerName(path)
			}
		}
	}

	return ""
}

func ownerName(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 {
		return ""
	}

	return parts[len(parts)-2] + "/" + parts[len(parts)-1]
}

// RefExists checks that a requested ref resolves in the repository. Used by
// index_repository when a ref argument is given.
func RefExists(root, ref string) bool {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return false
	}

	_, err = repo.Reference(plumbing.NewBranchReferenceName(ref), true)
	if err == nil {
		return true
	}

	_, err = repo.ResolveRevision(plumbing.Revision(ref))

	return err == nil
}
