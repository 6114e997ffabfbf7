package repository

import "errors"

var ErrTargetAlreadyPublished = errors.New("target already published")
