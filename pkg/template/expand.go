// Package template expands placeholders in operator-supplied strings:
// audit actor names and package output paths.
package template

import (
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"
)

// Expand replaces {placeholder} occurrences in text.
//
// Built-in placeholders:
//
//	{date}     - current date, YYYY-MM-DD
//	{time}     - current time, HH:MM:SS
//	{unix}     - current Unix timestamp
//	{user}     - invoking username
//	{hostname} - short hostname
//
// Entries in vars override the built-ins; callers add context-specific
// placeholders like {version} this way.
func Expand(text string, vars map[string]string) string {
	if !strings.Contains(text, "{") {
		return text
	}
	now := time.Now()

	placeholders := map[string]string{
		"date":     now.Format("2006-01-02"),
		"time":     now.Format("15:04:05"),
		"unix":     fmt.Sprintf("%d", now.Unix()),
		"user":     currentUser(),
		"hostname": shortHostname(),
	}
	for k, v := range vars {
		placeholders[k] = v
	}

	result := text
	for key, value := range placeholders {
		result = strings.ReplaceAll(result, "{"+key+"}", value)
	}
	return result
}

// ExpandActor expands an audit actor name such as "{user}@{hostname}".
func ExpandActor(actor string) string {
	return Expand(actor, nil)
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "unknown"
}

func shortHostname() string {
	if h, err := os.Hostname(); err == nil {
		return strings.Split(h, ".")[0]
	}
	return "unknown"
}
