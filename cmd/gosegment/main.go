// Command gosegment trains, serves and monitors customer segmentation
// models.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
