package stream

import "testing"

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		dev     bool
		base    string
		want    string
		wantErr bool
	}{
		{"development uses fixed url", true, "https://admin.example.com", "ws://localhost:8000/ws/monitor", false},
		{"https upgrades to wss", false, "https://admin.example.com", "wss://admin.example.com/ws/monitor", false},
		{"http stays ws", false, "http://10.0.0.5:8000/admin", "ws://10.0.0.5:8000/ws/monitor", false},
		{"no host", false, "/relative", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveEndpoint(tt.dev, tt.base, "ws://localhost:8000/ws/monitor", "/ws/monitor")
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ResolveEndpoint() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveEndpointNormalisesPath(t *testing.T) {
	got, err := ResolveEndpoint(false, "https://admin.example.com", "", "ws/monitor")
	if err != nil {
		t.Fatal(err)
	}
	if got != "wss://admin.example.com/ws/monitor" {
		t.Errorf("got %q", got)
	}

	if _, err := ResolveEndpoint(true, "", "", "/ws"); err == nil {
		t.Error("development without a dev URL should fail")
	}
}
