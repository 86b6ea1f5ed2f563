package main

import "github.com/approvalflow/approval-gateway/cmd"

func main() {
	cmd.Execute()
}
