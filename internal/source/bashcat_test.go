package source

import "testing"

func TestCategorizeBash(t *testing.T) {
	tests := []struct {
		cmd  string
		want string
	}{
		{"git status", "Version Control"},
		{"gh pr list", "Version Control"},
		{"cd /repo && git log", "Version Control"},
		{"cd /repo; cd sub; ls -la", "Searching & Reading"},
		{"sudo systemctl restart nginx", "Server & System"},
		{"FOO=bar BAZ=1 python script.py", "Running Code"},
		{"./venv/bin/python -m pytest", "Running Code"},
		{"source venv/bin/activate && pytest", "Running Code"},
		{". ~/.profile", "Server & System"},
		{"cat file.txt | grep needle", "Searching & Reading"},
		{"rm -rf build; mkdir build", "File Management"},
		{"curl -s http://localhost:8080/health", "Testing & Monitoring"},
		{"docker-compose up -d", "Server & System"},
		{"cd /tmp", "Other"},
		{"make build", "Other"},
		{"gitk", "Other"},
		{"", "Other"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			if got := CategorizeBash(tt.cmd); got != tt.want {
				t.Errorf("CategorizeBash(%q) = %q, want %q", tt.cmd, got, tt.want)
			}
		})
	}
}
