package service

import (
	"errors"
	"regexp"
	"strings"

	"github.com/copaint/copaint/models"
)

// FileAccess resolves the effective permission a user holds on a file.
// The owner always has edit; collaborators get their granted level;
// everyone else gets none. Share links do not grant standing access,
// joining through one records the user as a collaborator first.
func FileAccess(file models.File, userId string) models.Permission {
	if file.OwnerId == userId {
		return models.PermissionEdit
	}

	for _, c := range file.Collaborators {
		if c.UserId == userId {
			return c.Permission
		}
	}

	return models.PermissionNone
}

// HasPermission reports whether a user's effective permission on a file
// meets or exceeds the required level.
func HasPermission(file models.File, userId string, required models.Permission) bool {
	return FileAccess(file, userId).Rank() >= required.Rank()
}

const maxFileNameLength = 100

var controlCharRegex = regexp.MustCompile(`[\x00-\x1f\x7f]`)

func ValidateFileName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return errors.New("file name must not be empty")
	}
	if len(trimmed) > maxFileNameLength {
		return errors.New("file name too long")
	}
	if controlCharRegex.MatchString(trimmed) {
		return errors.New("file name must not contain control characters")
	}
	return nil
}
