// Package config loads the optional dar.conf/.dcf-style response file
// cmd/dar can read before parsing its flags, the way libdar's
// -B <file> response-file option lets a caller stash its usual
// arguments on disk. Flags passed on the command line still override
// whatever a response file sets — this package only supplies defaults.
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/dar-go/dar/pkg/errs"
)

// File holds the subset of cmd/dar's flags a response file can set.
// The root, slice_size, compression and reference keys match cmd/dar
// create's flag names with dashes turned into underscores, mirroring
// the teacher's own env-var convention (CLIP_CHECKPOINT_MIB etc.) one
// layer down; the create key supplies create's -out destination. The
// extract, test, diff and mount keys are loaded but cmd/dar does not
// read them.
type File struct {
	Create      string `mapstructure:"create"`
	Extract     string `mapstructure:"extract"`
	Test        string `mapstructure:"test"`
	Diff        string `mapstructure:"diff"`
	Mount       string `mapstructure:"mount"`
	Root        string `mapstructure:"root"`
	SliceSize   int    `mapstructure:"slice_size"`
	Compression string `mapstructure:"compression"`
	Reference   string `mapstructure:"reference"`
}

// Load reads path (any format viper recognizes by extension: .conf,
// .dcf, .yaml, .json, ...) into a File. A path that doesn't exist is
// the caller's error to report; Load itself only wraps viper's.
func Load(path string) (File, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if strings.HasSuffix(path, ".dcf") {
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		return File{}, errs.New(errs.KindHardware, "config.Load", err)
	}
	var f File
	if err := v.Unmarshal(&f); err != nil {
		return File{}, errs.New(errs.KindFeature, "config.Load", err)
	}
	return f, nil
}
