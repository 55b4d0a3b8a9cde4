//go:build !unix

package backup

import "github.com/juju/errors"

func fileOwner(path string) (string, error) {
	return "", errors.NotSupportedf("file ownership of %s", path)
}
