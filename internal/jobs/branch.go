package jobs

import "strings"

// BranchPrefix marks branches created for jobs. The job runner pushes its
// results on the same branch, so the completion webhook can recover the id.
const BranchPrefix = "job/"

func EncodeBranch(jobID string) string {
	return BranchPrefix + jobID
}

// DecodeBranch returns the job id carried by branch, or false when branch is
// not a job branch.
func DecodeBranch(branch string) (string, bool) {
	branch = strings.TrimPrefix(strings.TrimSpace(branch), "refs/heads/")
	if !strings.HasPrefix(branch, BranchPrefix) {
		return "", false
	}
	id := strings.TrimSpace(strings.TrimPrefix(branch, BranchPrefix))
	if id == "" {
		return "", false
	}
	return id, true
}
