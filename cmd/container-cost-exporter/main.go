package main

import (
	"os"

	"k8s.io/klog/v2"
)

func main() {
	defer klog.Flush()

	if err := newRootCommand().Execute(); err != nil {
		klog.ErrorS(err, "Container cost exporter failed")
		klog.Flush()
		os.Exit(1)
	}
}
