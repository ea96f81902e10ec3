// SPDX-License-Identifier: MPL-2.0

package main

import cmd "plumb-cli/cmd/plumb"

func main() {
	cmd.Execute()
}
