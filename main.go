package main

import "batchrag/cmd/batchrag"

func main() {
	batchrag.Main()
}
