package report

import (
	"context"
	"path"
	"strings"

	"github.com/kuitang/todolist-e2e/internal/errs"
)

// ObjectStore is the storage surface Publish needs. *s3client.Client satisfies it.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, content []byte, contentType string) error
	GetPublicURL(key string) string
}

// Published holds the public URLs of an uploaded report.
type Published struct {
	HTMLURL string
	JSONURL string
}

// Keys returns the object keys a report is stored under.
func (r *Report) Keys(prefix string) (htmlKey, jsonKey string) {
	base := path.Join(strings.Trim(prefix, "/"), r.RunID)
	return base + "/report.html", base + "/report.json"
}

// Publish uploads the HTML and JSON renderings of r under prefix/<run id>/.
func Publish(ctx context.Context, store ObjectStore, prefix string, r *Report) (Published, error) {
	if r.RunID == "" {
		return Published{}, errs.New(errs.InvalidArgument, "report has no run id")
	}
	htmlKey, jsonKey := r.Keys(prefix)

	html, err := r.HTML()
	if err != nil {
		return Published{}, err
	}
	if err := store.PutObject(ctx, htmlKey, html, "text/html; charset=utf-8"); err != nil {
		return Published{}, errs.Wrap(errs.Unavailable, "publish html report", err)
	}

	data, err := r.JSON()
	if err != nil {
		return Published{}, err
	}
	if err := store.PutObject(ctx, jsonKey, data, "application/json"); err != nil {
		return Published{}, errs.Wrap(errs.Unavailable, "publish json report", err)
	}

	return Published{
		HTMLURL: store.GetPublicURL(htmlKey),
		JSONURL: store.GetPublicURL(jsonKey),
	}, nil
}
