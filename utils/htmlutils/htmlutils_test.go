// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

package htmlutils

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func TestNode2string(t *testing.T) {
	tests := []struct {
		expected string
		input    string
	}{
		{"foo bar", "<div><pre>foo</pre><span>bar</span>"},
		{"visible", "<div>visible<script>alert(1)</script><style>p{}</style></div>"},
	}

	for _, test := range tests {
		n, err := html.Parse(strings.NewReader(test.input))
		if err != nil {
			t.Fatalf("parsing HTML `%s': %s", test.input, err)
		}

		sb := strings.Builder{}
		Node2string(n, &sb)

		if got := sb.String(); got != test.expected {
			t.Errorf("`%s': expected `%v' but got `%v'", test.input, test.expected, got)
		}
	}
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hueco frente a la escuela", "Hueco frente a la escuela"},
		{"  espacios  ", "espacios"},
		{"Hay un <b>bache</b> enorme", "Hay un bache enorme"},
		{"<img src=x onerror=alert(1)>Alcantarilla", "Alcantarilla"},
		{"Calle &amp; acera", "Calle & acera"},
		{"<script>alert(1)</script>", ""},
		{"", ""},
	}

	for _, test := range tests {
		if got := PlainText(test.input); got != test.expected {
			t.Errorf("`%s': expected `%v' but got `%v'", test.input, test.expected, got)
		}
	}
}

func TestPlainTexts(t *testing.T) {
	got := PlainTexts([]string{"<i>bache</i>", " ", "<script>x</script>", "vía"})
	if len(got) != 2 || got[0] != "bache" || got[1] != "vía" {
		t.Errorf("unexpected result %q", got)
	}
}

func TestAsReader_WithNonOKStatus(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(strings.NewReader("")),
	}

	r, err := AsReader(resp)
	if r != nil {
		t.Errorf("Expected nil reader")
	} else if err == nil || !strings.Contains(err.Error(), "status 404") {
		t.Errorf("Expected error containing 'status 404', got %v", err)
	}
}

func TestAsReader_Transcoding(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader("Lim\xf3n")),
	}
	resp.Header.Set("Content-Type", "application/json; charset=iso-8859-1")

	r, err := AsReader(resp)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}

	if string(b) != "Limón" {
		t.Errorf("Expected transcoded content, got %q", b)
	}
}

func TestAsReader_NoCharsetIsUTF8(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(`{"display_name":"Limón"}`)),
	}
	resp.Header.Set("Content-Type", "application/json")

	r, err := AsReader(resp)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	b, _ := io.ReadAll(r)
	if string(b) != `{"display_name":"Limón"}` {
		t.Errorf("unexpected content %q", b)
	}
}
