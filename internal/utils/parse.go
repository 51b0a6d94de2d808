package utils

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var codeFenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// StripCodeFences removes a markdown code fence around s, if present. Models
// asked for JSON frequently wrap their answer in one.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}

// DecodeJSON unmarshals content into v. When the content is not valid JSON it
// is passed through jsonrepair once, which fixes the unquoted keys, single
// quotes and missing braces small local models tend to produce.
func DecodeJSON(content string, v any) error {
	err := json.Unmarshal([]byte(content), v)
	if err == nil {
		return nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(content)
	if repairErr != nil {
		return fmt.Errorf("utils: decode json: %w (repair: %v)", err, repairErr)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("utils: decode repaired json %s: %w", TruncateString(repaired, 200), err)
	}
	return nil
}

// ParseStringAs converts a model response into T.
//
// Strings are returned untouched. Booleans and numbers are parsed after code
// fences and whitespace are stripped, so a classifier answering "```\n1\n```"
// still yields 1. Every other type is decoded as JSON with [DecodeJSON].
//
//	v, err := ParseStringAs[Verdict](`{result: 1`)
//	n, err := ParseStringAs[int]("42")
func ParseStringAs[T any](content string) (T, error) {
	var result T
	target := reflect.ValueOf(&result).Elem()

	if target.Kind() == reflect.String {
		target.SetString(content)
		return result, nil
	}

	ok, err := setScalar(target, StripCodeFences(content))
	if ok {
		return result, err
	}

	if err := DecodeJSON(StripCodeFences(content), &result); err != nil {
		return result, fmt.Errorf("utils: parse %T: %w", result, err)
	}
	return result, nil
}

// setScalar parses s into a bool or numeric target. It reports false when the
// target is not a scalar kind.
func setScalar(target reflect.Value, s string) (bool, error) {
	var err error
	switch target.Kind() {
	case reflect.Bool:
		var b bool
		if b, err = strconv.ParseBool(s); err == nil {
			target.SetBool(b)
		}
	case reflect.Float32, reflect.Float64:
		var f float64
		if f, err = strconv.ParseFloat(s, target.Type().Bits()); err == nil {
			target.SetFloat(f)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var i int64
		if i, err = strconv.ParseInt(s, 10, target.Type().Bits()); err == nil {
			target.SetInt(i)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var u uint64
		if u, err = strconv.ParseUint(s, 10, target.Type().Bits()); err == nil {
			target.SetUint(u)
		}
	default:
		return false, nil
	}
	if err != nil {
		return true, fmt.Errorf("utils: parse %s: %w", target.Kind(), err)
	}
	return true, nil
}
