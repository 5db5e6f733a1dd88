package commands_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bdobrica/marv/internal/marv/chat"
	"github.com/bdobrica/marv/internal/marv/commands"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in       string
		wantName string
		wantArgs []string
		wantErr  error
	}{
		{in: "/summarize", wantName: "summarize"},
		{in: "/summarize 2 ru", wantName: "summarize", wantArgs: []string{"2", "ru"}},
		{in: "  /help  ", wantName: "help"},
		{in: "/SUMMARIZE 1", wantName: "summarize", wantArgs: []string{"1"}},
		{in: "/summarize@marv 3", wantName: "summarize", wantArgs: []string{"3"}},
		{in: "hello there", wantErr: commands.ErrNotACommand},
		{in: "", wantErr: commands.ErrNotACommand},
	}

	for _, tc := range tests {
		name, args, err := commands.Parse(tc.in)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Parse(%q): err = %v, want %v", tc.in, err, tc.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): %v", tc.in, err)
			continue
		}
		if name != tc.wantName {
			t.Errorf("Parse(%q): name = %q, want %q", tc.in, name, tc.wantName)
		}
		if len(args) != len(tc.wantArgs) {
			t.Errorf("Parse(%q): args = %v, want %v", tc.in, args, tc.wantArgs)
			continue
		}
		for i := range args {
			if args[i] != tc.wantArgs[i] {
				t.Errorf("Parse(%q): args[%d] = %q, want %q", tc.in, i, args[i], tc.wantArgs[i])
			}
		}
	}
}

func TestRoute_UnknownCommand(t *testing.T) {
	r := commands.NewRouter()
	r.Register("help", func(context.Context, []string, chat.Event) (string, error) {
		return "helped", nil
	})

	got, err := r.Route(context.Background(), "help", nil, chat.Event{})
	if err != nil || got != "helped" {
		t.Errorf("Route(help): got %q, %v", got, err)
	}

	_, err = r.Route(context.Background(), "frobnicate", nil, chat.Event{})
	if !errors.Is(err, commands.ErrUnknownCommand) {
		t.Errorf("Route(frobnicate): err = %v, want ErrUnknownCommand", err)
	}
}

func TestParseSummarizeArgs(t *testing.T) {
	known := func(code string) bool { return code == "ru" || code == "en" }

	tests := []struct {
		name    string
		args    []string
		want    commands.SummarizeArgs
		wantErr bool
	}{
		{name: "no args", args: nil, want: commands.SummarizeArgs{}},
		{
			name: "hours only",
			args: []string{"2"},
			want: commands.SummarizeArgs{Hours: 2, HasHours: true},
		},
		{
			name: "fractional hours",
			args: []string{"0.5"},
			want: commands.SummarizeArgs{Hours: 0.5, HasHours: true},
		},
		{
			name: "hours and language",
			args: []string{"3", "RU"},
			want: commands.SummarizeArgs{Hours: 3, HasHours: true, Lang: "ru"},
		},
		{
			name: "language only",
			args: []string{"ru"},
			want: commands.SummarizeArgs{Lang: "ru"},
		},
		{name: "non-numeric non-language", args: []string{"soon"}, wantErr: true},
		{name: "negative hours", args: []string{"-2"}, wantErr: true},
		{name: "zero hours", args: []string{"0"}, wantErr: true},
		{name: "garbage hours with language", args: []string{"abc", "ru"}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := commands.ParseSummarizeArgs(tc.args, known)
			if tc.wantErr {
				if !errors.Is(err, commands.ErrInvalidHours) {
					t.Fatalf("err = %v, want ErrInvalidHours", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestParseSummarizeArgs_UnknownLanguagePassesThrough(t *testing.T) {
	known := func(code string) bool { return code == "en" }

	// An unknown language in the second position is not a rejection; the
	// dispatcher falls back to the default language and says so.
	got, err := commands.ParseSummarizeArgs([]string{"2", "xx"}, known)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Lang != "xx" || !got.HasHours {
		t.Errorf("got %+v", got)
	}
}
