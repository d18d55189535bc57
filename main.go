// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/mireportec/mireportec/cmd"
)

var Version = "development"

func main() {
	cmd.Execute(Version)
}
