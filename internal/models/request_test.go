package models

import (
	"reflect"
	"testing"
)

func TestRemoteDestination(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		dir      string
		wantDir  string
		wantArg  string
		wantSpec string
	}{
		{"plain", "alice", "/srv/incoming", "/srv/incoming", "/srv/incoming/", "alice@box.local:/srv/incoming/"},
		{"trailing slashes", "alice", "/srv/incoming//", "/srv/incoming", "/srv/incoming/", "alice@box.local:/srv/incoming/"},
		{"root", "alice", "/", "/", "/", "alice@box.local:/"},
		{"root repeated", "alice", "///", "/", "/", "alice@box.local:/"},
		{"backslashes", "alice", `\srv\in\`, "/srv/in", "/srv/in/", "alice@box.local:/srv/in/"},
		{"relative", "alice", "uploads", "uploads", "uploads/", "alice@box.local:uploads/"},
		{"empty", "alice", "", ".", "./", "alice@box.local:./"},
		{"no user", "", "/srv/x", "/srv/x", "/srv/x/", "box.local:/srv/x/"},
		{"spaces kept", "alice", "/srv/my projects/", "/srv/my projects", "/srv/my projects/", "alice@box.local:/srv/my projects/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := TransferRequest{DestinationHost: "box.local", DestinationUser: tt.user, DestinationDir: tt.dir}
			if got := r.RemoteDir(); got != tt.wantDir {
				t.Errorf("RemoteDir() = %q, want %q", got, tt.wantDir)
			}
			if got := r.RemoteDirArg(); got != tt.wantArg {
				t.Errorf("RemoteDirArg() = %q, want %q", got, tt.wantArg)
			}
			if got := r.RemoteSpec(); got != tt.wantSpec {
				t.Errorf("RemoteSpec() = %q, want %q", got, tt.wantSpec)
			}
		})
	}
}

func TestFlagsFor(t *testing.T) {
	flags := []string{"--chmod=Dg+s"}
	tests := []struct {
		name  string
		kind  TransportKind
		asked TransportKind
		want  []string
	}{
		{"empty kind means rsync", "", KindRsync, flags},
		{"empty kind withheld from scp", "", KindSCP, nil},
		{"scp flags to scp", KindSCP, KindSCP, flags},
		{"scp flags withheld from rsync", KindSCP, KindRsync, nil},
		{"sftp flags withheld from stream", KindSFTP, KindSSHStream, nil},
	}
	for _, tt := range tests {
		r := TransferRequest{ExtraFlags: flags, ExtraFlagsKind: tt.kind}
		if got := r.FlagsFor(tt.asked); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: FlagsFor(%s) = %q, want %q", tt.name, tt.asked, got, tt.want)
		}
	}
}

func TestEffectivePort(t *testing.T) {
	for port, want := range map[int]int{0: 22, -1: 22, 2222: 2222} {
		if got := (TransferRequest{Port: port}).EffectivePort(); got != want {
			t.Errorf("EffectivePort(%d) = %d, want %d", port, got, want)
		}
	}
}
