package main

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func newKlogFlags() *flag.FlagSet {
	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	return fs
}

func TestApplyLogLevel(t *testing.T) {
	tests := []struct {
		level     string
		explicit  bool
		wantV     string
		threshold string
	}{
		{level: "debug", wantV: "4", threshold: "0"},
		{level: "info", wantV: "2", threshold: "0"},
		{level: "warning", wantV: "0", threshold: "1"},
		{level: "error", wantV: "0", threshold: "2"},
		{level: "error", explicit: true, wantV: "7", threshold: "2"},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			fs := newKlogFlags()
			require.NoError(t, fs.Set("v", "7"))
			if !tt.explicit {
				require.NoError(t, fs.Set("v", "0"))
			}

			require.NoError(t, applyLogLevel(fs, tt.level, tt.explicit))
			assert.Equal(t, tt.wantV, fs.Lookup("v").Value.String())
			assert.Equal(t, tt.threshold, fs.Lookup("stderrthreshold").Value.String())
		})
	}
}

func TestApplyLogLevelUnknown(t *testing.T) {
	assert.Error(t, applyLogLevel(newKlogFlags(), "verbose", false))
}
