package main

import "github.com/oshokin/wechat-mac-releaser/cmd/wechat-mac-releaser/cmd"

func main() {
	cmd.Execute()
}
