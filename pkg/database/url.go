package database

import (
	"net/url"
	"strings"

	"github.com/tegdb/tegdb/pkg/errors"
)

// ResolvePath aceita "file:///caminho/absoluto/db.teg" ou um caminho de
// filesystem puro. O caminho precisa terminar em .teg.
func ResolvePath(dbURL string) (string, error) {
	path := dbURL

	if strings.Contains(dbURL, "://") {
		u, err := url.Parse(dbURL)
		if err != nil {
			return "", &errors.SchemaError{Msg: "invalid database URL: " + dbURL}
		}
		if u.Scheme != "file" {
			return "", &errors.SchemaError{Msg: "unsupported URL scheme " + u.Scheme + " (only file:// is supported)"}
		}
		if u.Host != "" {
			return "", &errors.SchemaError{Msg: "file:// URL must use an absolute path"}
		}
		path = u.Path
	}

	if !strings.HasSuffix(path, ".teg") {
		return "", &errors.SchemaError{Msg: "database path must end in .teg"}
	}
	return path, nil
}
