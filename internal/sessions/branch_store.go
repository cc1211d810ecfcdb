package sessions

import "errors"

// Branch store errors.
var (
	ErrBranchNotFound      = errors.New("branch not found")
	ErrCannotMergePrimary  = errors.New("cannot merge primary branch")
	ErrBranchAlreadyMerged = errors.New("branch has already been merged")
)

// BranchListOptions configures branch listing queries.
type BranchListOptions struct {
	IncludeArchived bool
	Limit           int
	Offset          int
}

// DefaultBranchListOptions returns sensible defaults for branch listing.
func DefaultBranchListOptions() BranchListOptions {
	return BranchListOptions{
		IncludeArchived: false,
		Limit:           50,
	}
}
