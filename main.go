// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/appboot/appboot/cmd/appboot"

func main() {
	cmd.Execute()
}
