package imustream

import errors "golang.org/x/xerrors"

var (
	ErrNotFound  = errors.New("imustream: subscriber not found")
	ErrBadRecord = errors.New("imustream: malformed record")
)
