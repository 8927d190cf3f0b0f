// Package sheets builds export URLs for hosted spreadsheets.
package sheets

import (
	"fmt"
	"net/url"
	"strings"
)

const base = "https://docs.google.com/spreadsheets/d/"

// ExportURL converts an edit/share URL into its CSV export URL:
//
//	https://docs.google.com/spreadsheets/d/<id>/edit?gid=42#gid=42
//	→ https://docs.google.com/spreadsheets/d/<id>/export?format=csv&gid=42
//
// The sheet id comes from the gid query parameter, else the "gid=" fragment,
// else "0".
func ExportURL(editURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(editURL))
	if err != nil {
		return "", fmt.Errorf("parse sheet url: %w", err)
	}
	id, err := documentID(u.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %q", err, editURL)
	}
	gid := u.Query().Get("gid")
	if gid == "" {
		if frag, err := url.ParseQuery(u.Fragment); err == nil {
			gid = frag.Get("gid")
		}
	}
	if gid == "" {
		gid = "0"
	}
	return base + id + "/export?format=csv&gid=" + url.QueryEscape(gid), nil
}

// GvizURL returns the visualization-query export for a sheet. format is
// "csv" or "html".
func GvizURL(id, gid, format string) string {
	if gid == "" {
		gid = "0"
	}
	if format == "" {
		format = "csv"
	}
	q := url.Values{}
	q.Set("tqx", "out:"+format)
	q.Set("gid", gid)
	return base + url.PathEscape(id) + "/gviz/tq?" + q.Encode()
}

func documentID(path string) (string, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "d" && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}
	return "", fmt.Errorf("no document id in sheet url")
}
