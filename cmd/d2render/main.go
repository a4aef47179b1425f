package main

import (
	"oss.terrastruct.com/d2render/cli"
	"oss.terrastruct.com/d2render/lib/xmain"
)

func main() {
	xmain.Main(cli.Run)
}
