package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrComplianceBlocked = errors.New("blocked by compliance guard")
	ErrMissingBusinessID = errors.New("business id is required")
	ErrMissingLocationID = errors.New("location id is required")
	ErrAlreadyReplied    = errors.New("review already has a reply")
	ErrEmptyText         = errors.New("nothing to publish")
)

// BlockedError reports which violation categories refused a publication.
type BlockedError struct {
	Target Target
	Codes  []ViolationCode
}

func (e *BlockedError) Error() string {
	codes := make([]string, 0, len(e.Codes))
	for _, c := range e.Codes {
		codes = append(codes, string(c))
	}
	return fmt.Sprintf("%s %s: %s", e.Target, ErrComplianceBlocked, strings.Join(codes, ","))
}

func (e *BlockedError) Is(target error) bool { return target == ErrComplianceBlocked }
