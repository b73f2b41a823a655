package notifier

import "testing"

func TestCleanContent(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			"plain text untouched",
			"Hello world",
			"Hello world",
		},
		{
			"pic shortlink removed",
			"Check this out pic.twitter.com/AbC123",
			"Check this out",
		},
		{
			"tco shortlink removed",
			"Read more https://t.co/xYz789 now",
			"Read more now",
		},
		{
			"attribution stripped",
			"Hello world — Alice Example (@alice) August 1, 2026",
			"Hello world",
		},
		{
			"entity attribution stripped",
			"Hello world &mdash; Alice Example (@alice) August 1, 2026",
			"Hello world",
		},
		{
			"hyphen attribution stripped",
			"Hello world - Alice Example (@alice) August 1, 2026",
			"Hello world",
		},
		{
			"whitespace normalized",
			"Hello    world  again",
			"Hello world again",
		},
		{
			"combined",
			"Big news pic.twitter.com/AbC123 — Alice (@alice) August 1, 2026",
			"Big news",
		},
		{
			"empty",
			"",
			"",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CleanContent(tc.in); got != tc.want {
				t.Fatalf("CleanContent(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
