// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/gomlx/searchnet/pkg/ml/hyperparams"
	"github.com/gomlx/searchnet/pkg/support/fsutil"
	"github.com/gomlx/searchnet/pkg/support/xslices"
	"github.com/pkg/errors"
)

// ParseSettings from settings, typically the contents of a flag set by the user.
// The settings are a list separated by ";": e.g.: "param1=value1;param2=value2;...".
//
// All the parameters "param1", "param2", etc. must be already set with default values
// in `params`. The default values are also used to set the type to which the
// string values will be parsed to.
//
// It updates `params` accordingly and returns the list of parameters set, or an error in case a parameter
// is unknown or the parsing failed.
//
// For integer types, "_" is removed: it allows one to enter large numbers using it as a separator, like
// in Go. E.g.: 1_000_000 = 1000000.
//
// Example usage:
//
//	func main() {
//		params := searchnet.DefaultParams()
//		settings := commandline.CreateSettingsFlag(params, "")
//		flag.Parse()
//		paramsSet := must.M1(commandline.ParseSettings(params, *settings))
//		fmt.Println(commandline.SprintModifiedSettings(params, paramsSet))
//		...
//	}
func ParseSettings(params *hyperparams.Params, settings string) (paramsSet []string, err error) {
	for _, setting := range strings.Split(settings, ";") {
		paramsSet, err = parseSetting(params, setting, paramsSet)
		if err != nil {
			return
		}
	}
	return
}

func parseSetting(params *hyperparams.Params, setting string, paramsSet []string) (newParamsSet []string, err error) {
	newParamsSet = paramsSet
	setting = strings.TrimSpace(setting)
	if setting == "" {
		return
	}
	if strings.HasPrefix(setting, "file:") {
		// Read parameters from a file.
		filePath := strings.TrimPrefix(setting, "file:")
		filePath, err = fsutil.ReplaceTildeInDir(filePath)
		if err != nil {
			return
		}
		var contents []byte
		contents, err = os.ReadFile(filePath)
		if err != nil {
			err = errors.Wrapf(err, "failed to read settings from file %q", filePath)
			return
		}
		for _, line := range strings.Split(string(contents), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			for _, setting := range strings.Split(line, ";") {
				newParamsSet, err = parseSetting(params, setting, newParamsSet)
				if err != nil {
					return
				}
			}
		}
		return
	}

	key, valueStr, ok := strings.Cut(setting, "=")
	if !ok || strings.Contains(valueStr, "=") {
		err = errors.Errorf("can't parse setting %q: each setting requires the format \"<param>=<value>\"", setting)
		return
	}
	value, found := params.Get(key)
	if !found {
		err = errors.Errorf("can't set parameter %q because it is not known, see -help for the list of parameters", key)
		return
	}

	// Parse value according to the type of the current value.
	switch v := value.(type) {
	case int:
		err = json.Unmarshal([]byte(strings.ReplaceAll(valueStr, "_", "")), &v)
		value = v
	case int64:
		err = json.Unmarshal([]byte(strings.ReplaceAll(valueStr, "_", "")), &v)
		value = v
	case float64:
		err = json.Unmarshal([]byte(valueStr), &v)
		value = v
	case bool:
		err = json.Unmarshal([]byte(valueStr), &v)
		value = v
	case string:
		value = valueStr
	case []string:
		value = strings.Split(valueStr, ",")
	case []int:
		value = xslices.Map(strings.Split(valueStr, ","), func(str string) int {
			var asInt int
			if newErr := json.Unmarshal([]byte(strings.ReplaceAll(str, "_", "")), &asInt); newErr != nil {
				err = newErr
			}
			return asInt
		})
	case []float64:
		value = xslices.Map(strings.Split(valueStr, ","), func(str string) float64 {
			var asNum float64
			if newErr := json.Unmarshal([]byte(str), &asNum); newErr != nil {
				err = newErr
			}
			return asNum
		})
	default:
		err = errors.Errorf("don't know how to parse type %T for setting parameter %q", value, setting)
	}
	if err != nil {
		err = errors.Wrapf(err, "failed to parse value %q for parameter %q (default value is %#v)", valueStr, key, value)
		return
	}
	params.Set(key, value)
	newParamsSet = append(newParamsSet, key)
	return
}

// CreateSettingsFlag creates a string flag with the given flagName (if empty it will be named
// "set") and with a description of the parameters currently defined in `params`.
//
// The flag should be created before the call to `flags.Parse()`.
func CreateSettingsFlag(params *hyperparams.Params, flagName string) *string {
	if flagName == "" {
		flagName = "set"
	}
	parts := []string{
		`Set hyperparameters. ` +
			`It should be a list of elements "param=value" separated by ";". ` +
			`It can also be given an entry like: "file:settings_file.txt", in ` +
			`which case the file will be read and the settings will be parsed, ` +
			`with new-lines working as ";" to separate settings and lines starting with "#" are considered comments. ` +
			`Current available parameters that can be set:`,
	}
	params.Enumerate(func(key string, value any) {
		parts = append(parts, fmt.Sprintf("%q: default value is %v", key, value))
	})
	var settings string
	flag.StringVar(&settings, flagName, "", strings.Join(parts, "\n"))
	return &settings
}

// SprintSettings pretty-prints the values of all hyperparameters into a string.
func SprintSettings(params *hyperparams.Params) string {
	var parts []string
	params.Enumerate(func(key string, value any) {
		parts = append(parts, fmt.Sprintf("\t%q: (%T) %v", key, value, value))
	})
	return strings.Join(parts, "\n")
}

// SprintModifiedSettings pretty-prints the values of the hyperparameters in paramsSet (as returned by ParseSettings).
func SprintModifiedSettings(params *hyperparams.Params, paramsSet []string) string {
	paramsSet = slices.Clone(paramsSet)
	slices.Sort(paramsSet)
	paramsSet = slices.Compact(paramsSet)
	var parts []string
	for _, key := range paramsSet {
		value, found := params.Get(key)
		if !found {
			continue
		}
		parts = append(parts, fmt.Sprintf("\t%q: (%T) %v", key, value, value))
	}
	return strings.Join(parts, "\n")
}
