// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

// Package htmlutils provides utility functions for working with HTML.
package htmlutils

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// Node2string appends the text content of n to sb, one space between text nodes.
// Script and style contents are skipped.
func Node2string(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return
	}

	if n.Type == html.TextNode {
		tmp := strings.TrimSpace(strings.ReplaceAll(n.Data, "\n", " "))
		if len(tmp) > 0 {
			if sb.Len() != 0 {
				sb.WriteByte(' ')
			}

			sb.WriteString(tmp)
		}

		return
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		Node2string(child, sb)
	}
}

// PlainText strips any markup from user supplied text. Citizens paste
// descriptions and comments from all sorts of places, we only keep the words.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}

	n, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}

	sb := strings.Builder{}
	Node2string(n, &sb)

	return sb.String()
}

// PlainTexts applies PlainText to every element, dropping the ones that end up empty.
func PlainTexts(in []string) []string {
	out := make([]string, 0, len(in))

	for _, s := range in {
		if s = PlainText(s); s != "" {
			out = append(out, s)
		}
	}

	return out
}

// AsReader converts an HTTP response body to an io.Reader decoded to UTF-8
// according to the charset announced in the Content-Type header. Bodies
// without an explicit charset are assumed to be UTF-8 already.
func AsReader(resp *http.Response) (io.Reader, error) {
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	media := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(media), "charset=") {
		return resp.Body, nil
	}

	rr, err := charset.NewReader(resp.Body, media)
	if err != nil {
		return nil, err
	}

	return rr, nil
}
