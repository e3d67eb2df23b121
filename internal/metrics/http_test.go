package metrics

import "testing"

func TestPathLabelCollapsesParams(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/api/room/create", "/api/room/create"},
		{"/api/room/join", "/api/room/join"},
		{"/api/room/42", "/api/room/:id"},
		{"/api/room/42/result", "/api/room/:id/result"},
		{"/api/room/code/1000000009", "/api/room/code/:code"},
		{"/api/admin/user/7/ban", "/api/admin/user/:id/ban"},
		{"/api/admin/user/7/unban", "/api/admin/user/:id/unban"},
		{"/api/admin/room/9/close", "/api/admin/room/:id/close"},
		{"/api/rooms", "/api/rooms"},
		{"/healthz", "/healthz"},
	}
	for _, c := range cases {
		if got := pathLabel(c.in); got != c.want {
			t.Errorf("pathLabel(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
