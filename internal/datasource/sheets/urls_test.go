package sheets

import "testing"

func TestExportURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, in, want string
		wantErr        bool
	}{
		{
			name: "query_gid",
			in:   "https://docs.google.com/spreadsheets/d/abc123/edit?gid=555",
			want: "https://docs.google.com/spreadsheets/d/abc123/export?format=csv&gid=555",
		},
		{
			name: "fragment_gid",
			in:   "https://docs.google.com/spreadsheets/d/abc123/edit#gid=77",
			want: "https://docs.google.com/spreadsheets/d/abc123/export?format=csv&gid=77",
		},
		{
			name: "default_gid",
			in:   " https://docs.google.com/spreadsheets/d/abc123/edit?usp=sharing ",
			want: "https://docs.google.com/spreadsheets/d/abc123/export?format=csv&gid=0",
		},
		{name: "no_id", in: "https://docs.google.com/spreadsheets/", wantErr: true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ExportURL(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExportURL: %v", err)
			}
			if got != tc.want {
				t.Fatalf("ExportURL=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestGvizURL(t *testing.T) {
	t.Parallel()

	got := GvizURL("1EK96qUKEW2dfnRBT7NfeVouAFouUXDOvHRVVGJ8gs34", "700246857", "")
	want := "https://docs.google.com/spreadsheets/d/1EK96qUKEW2dfnRBT7NfeVouAFouUXDOvHRVVGJ8gs34/gviz/tq?gid=700246857&tqx=out%3Acsv"
	if got != want {
		t.Fatalf("GvizURL=%q, want %q", got, want)
	}
}
