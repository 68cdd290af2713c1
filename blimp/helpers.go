package blimp

import (
	"log/slog"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	snowflakePattern   = regexp.MustCompile(`^\d{10,}$`)
	customEmojiPattern = regexp.MustCompile(`(\d{10,})>?$`)
	messageLinkPattern = regexp.MustCompile(
		`discord(?:app)?\.com/channels/(?:\d{10,}|@me)/(\d{10,})/(\d{10,})`,
	)
	channelMentionPattern = regexp.MustCompile(`^<#(\d{10,})>$`)
	roleMentionPattern    = regexp.MustCompile(`^<@&(\d{10,})>$`)
	userMentionPattern    = regexp.MustCompile(`^<@!?(\d{10,})>$`)
)

// normalizeEmoji reduces a custom emoji token (`<:name:123...>`) to its
// numeric ID, and leaves unicode emoji and the literal "any" untouched.
func normalizeEmoji(s string) string {
	if m := customEmojiPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// truncate shortens the input string to a specified number of runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// structToSlogValue converts a struct to a slog.Value, using the struct's
// JSON tag as the key for each field, if set.
// If the `log` tag is set, the value specified will override the
// field's actual value. Ex: `log:"[redacted]"` hides the field's value.
func structToSlogValue(v any) slog.Value {
	typ := reflect.TypeOf(v)
	if typ == nil {
		return slog.AnyValue(nil)
	}
	val := reflect.ValueOf(v)

	if typ.Kind() == reflect.Ptr {
		if val.IsNil() {
			return slog.AnyValue(nil)
		}
		val = val.Elem()
		typ = typ.Elem()
	}

	if typ.Kind() != reflect.Struct {
		return slog.AnyValue(v)
	}

	var groupAttrs []slog.Attr

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		jsonTag, _, _ := strings.Cut(field.Tag.Get("json"), ",")

		if jsonTag == "" {
			jsonTag = field.Name
		}

		fv := val.Field(i)
		if !fv.CanInterface() {
			continue
		}

		logTag := field.Tag.Get("log")
		if logTag != "" {
			groupAttrs = append(
				groupAttrs,
				slog.Attr{Key: jsonTag, Value: slog.StringValue(logTag)},
			)
			continue
		}

		skip := false
		switch fv.Kind() {
		case reflect.Ptr:
			if fv.IsNil() {
				skip = true
			}
		case reflect.Map, reflect.Slice:
			if fv.IsNil() || fv.Len() == 0 {
				skip = true
			}
		case reflect.String:
			if fv.String() == "" {
				skip = true
			}
		}
		if skip {
			continue
		}

		groupAttrs = append(
			groupAttrs,
			slog.Attr{Key: jsonTag, Value: structToSlogValue(fv.Interface())},
		)
	}
	return slog.GroupValue(groupAttrs...)
}
