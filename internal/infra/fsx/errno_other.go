//go:build !unix

package fsx

func isStorageErrno(error) bool { return false }
