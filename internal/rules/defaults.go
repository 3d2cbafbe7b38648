package rules

// DefaultRules returns the starter rule set used to seed an empty rule
// directory. Seeding is the bootstrap layer's responsibility; the store
// itself only loads whatever is present.
func DefaultRules() []Rule {
	defs := []struct {
		name        string
		description string
		severity    int
		tags        []string
		content     string
	}{
		{
			name:        "LockBit_Ransomware",
			description: "Detects LockBit 3.0 ransomware signatures",
			severity:    5,
			tags:        []string{"ransomware", "lockbit", "encryption"},
			content: `rule LockBit_Ransomware : ransomware lockbit encryption
{
    meta:
        description = "Detects LockBit 3.0 ransomware signatures"
        author = "iris-triage"
        severity = "5"

    strings:
        $lockbit_str1 = "LockBit" nocase
        $lockbit_str2 = ".lockbit" nocase
        $lockbit_str3 = "restore-my-files.txt" nocase
        $lockbit_note = "All your important files are encrypted" nocase
        $lockbit_ext = { 2E 6C 6F 63 6B 62 69 74 }

    condition:
        2 of ($lockbit_str*) or 1 of ($lockbit_note, $lockbit_ext)
}
`,
		},
		{
			name:        "Persistence_Registry",
			description: "Detects registry modifications used for persistence",
			severity:    4,
			tags:        []string{"persistence", "registry", "startup"},
			content: `rule Persistence_Registry : persistence registry startup
{
    meta:
        description = "Detects registry modifications used for persistence"
        author = "iris-triage"
        severity = "4"

    strings:
        $reg_run1 = "\\Software\\Microsoft\\Windows\\CurrentVersion\\Run" nocase
        $reg_run2 = "\\Software\\Microsoft\\Windows\\CurrentVersion\\RunOnce" nocase
        $reg_run3 = "\\Software\\Microsoft\\Windows\\CurrentVersion\\Explorer\\StartupApproved" nocase
        $schtasks = "schtasks /create" nocase
        $startup_folder = "\\AppData\\Roaming\\Microsoft\\Windows\\Start Menu\\Programs\\Startup" nocase

    condition:
        2 of them
}
`,
		},
		{
			name:        "Credential_Dumper",
			description: "Detects credential extraction tooling",
			severity:    4,
			tags:        []string{"credential", "mimikatz", "lsass"},
			content: `rule Credential_Dumper : credential mimikatz lsass
{
    meta:
        description = "Detects credential extraction tooling"
        author = "iris-triage"
        severity = "4"

    strings:
        $mimikatz1 = "mimikatz" nocase
        $mimikatz2 = "mimilib" nocase
        $mimikatz3 = "sekurlsa" nocase
        $lsass1 = "lsass.exe" nocase
        $lsass2 = "wdigest" nocase
        $dump1 = "procdump" nocase
        $dump2 = "dumpert" nocase
        $technique1 = "sekurlsa::logonpasswords" nocase
        $technique2 = "privilege::debug" nocase

    condition:
        (2 of ($mimikatz*) and 1 of ($technique*)) or (2 of ($lsass*) and 1 of ($dump*))
}
`,
		},
		{
			name:        "Backdoor_Detection",
			description: "Detects backdoors and remote shells",
			severity:    5,
			tags:        []string{"backdoor", "shell", "remote"},
			content: `rule Backdoor_Detection : backdoor shell remote
{
    meta:
        description = "Detects backdoors and remote shells"
        author = "iris-triage"
        severity = "5"

    strings:
        $shell1 = "cmd.exe" nocase
        $shell2 = "powershell.exe" nocase
        $connect1 = "WSAConnect" nocase
        $connect2 = "InternetOpen" nocase
        $payload1 = "reverse shell" nocase
        $payload2 = "meterpreter" nocase
        $payload3 = "nc.exe" nocase

    condition:
        (1 of ($shell*) and 1 of ($connect*)) or (1 of ($payload*) and 1 of ($connect*))
}
`,
		},
		{
			name:        "Phishing_Detection",
			description: "Detects common phishing indicators",
			severity:    3,
			tags:        []string{"phishing", "email", "social"},
			content: `rule Phishing_Detection : phishing email social
{
    meta:
        description = "Detects common phishing indicators"
        author = "iris-triage"
        severity = "3"

    strings:
        $subject1 = "password reset" nocase
        $subject2 = "account verification" nocase
        $subject3 = "security alert" nocase
        $content1 = "click here" nocase
        $content2 = "verify your account" nocase
        $content3 = "confirm your identity" nocase

    condition:
        (1 of ($subject*) and 1 of ($content*))
}
`,
		},
	}

	out := make([]Rule, 0, len(defs))
	for _, d := range defs {
		out = append(out, Rule{
			ID:          RuleID(d.name),
			Name:        d.name,
			Description: d.description,
			Author:      "iris-triage",
			Severity:    d.severity,
			Tags:        d.tags,
			Enabled:     true,
			Content:     d.content,
		})
	}
	return out
}

// SeedDefaults writes the default rule set into the store's directory
// when it contains no rule documents, then reloads the catalog. A
// directory that already holds rules is left untouched.
func SeedDefaults(s *Store) (int, error) {
	snapshot, _ := s.LoadAll()
	if len(snapshot.Rules) > 0 {
		return 0, nil
	}

	seeded := 0
	for _, r := range DefaultRules() {
		if err := s.Save(r); err != nil {
			return seeded, err
		}
		seeded++
	}
	return seeded, nil
}
