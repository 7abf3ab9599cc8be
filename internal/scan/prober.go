package scan

import (
	"context"
	"fmt"
	"net"
	"time"

	"cyberguard-server/internal/models"
)

// Prober performs the network-touching part of a scan phase. It is an
// interface so tests can run sessions without a live network.
type Prober interface {
	// Reachable checks the target responds at all. A returned error is
	// treated as transient and retried by the session.
	Reachable(ctx context.Context, target string) error

	// Probe reports whether a TCP port accepts connections. A refused or
	// timed out dial is a closed port, not an error.
	Probe(ctx context.Context, target string, port int, timeout time.Duration) bool
}

// ConnectProber probes with plain TCP connect checks.
type ConnectProber struct {
	dialer net.Dialer
}

func NewConnectProber() *ConnectProber {
	return &ConnectProber{}
}

func (p *ConnectProber) Reachable(ctx context.Context, target string) error {
	if net.ParseIP(target) != nil {
		return nil
	}
	if _, err := net.DefaultResolver.LookupHost(ctx, target); err != nil {
		return fmt.Errorf("host lookup for %s: %w", target, err)
	}
	return nil
}

func (p *ConnectProber) Probe(ctx context.Context, target string, port int, timeout time.Duration) bool {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := p.dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(target, fmt.Sprintf("%d", port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

type serviceProfile struct {
	Service string
	Finding *models.VulnerabilityFinding
}

// Known service ports. Entries with a nil finding are benign exposures
// that are probed but produce no vulnerability.
var serviceProfiles = map[int]serviceProfile{
	21: {"ftp", &models.VulnerabilityFinding{
		Title:            "FTP service exposed",
		Description:      "Cleartext file transfer service reachable from the network",
		Severity:         models.SeverityHigh,
		CVSSScore:        7.5,
		Exploitable:      true,
		AssetCriticality: "medium",
	}},
	22: {"ssh", &models.VulnerabilityFinding{
		Title:            "SSH service exposed",
		Description:      "Remote shell reachable; verify key-only authentication",
		Severity:         models.SeverityLow,
		CVSSScore:        3.1,
		AssetCriticality: "medium",
	}},
	23: {"telnet", &models.VulnerabilityFinding{
		Title:            "Telnet service exposed",
		Description:      "Unencrypted remote shell with known credential attacks",
		Severity:         models.SeverityCritical,
		CVSSScore:        9.8,
		Exploitable:      true,
		PublicExploit:    true,
		AssetCriticality: "high",
	}},
	25:  {"smtp", nil},
	80:  {"http", nil},
	110: {"pop3", &models.VulnerabilityFinding{
		Title:            "POP3 service exposed",
		Description:      "Legacy mail retrieval over cleartext",
		Severity:         models.SeverityMedium,
		CVSSScore:        5.3,
		AssetCriticality: "low",
	}},
	139: {"netbios", &models.VulnerabilityFinding{
		Title:            "NetBIOS session service exposed",
		Description:      "Windows file sharing session service reachable",
		Severity:         models.SeverityHigh,
		CVSSScore:        8.1,
		Exploitable:      true,
		AssetCriticality: "high",
	}},
	443: {"https", nil},
	445: {"smb", &models.VulnerabilityFinding{
		Title:            "SMB service exposed",
		Description:      "SMB reachable from the network, historically wormable",
		Severity:         models.SeverityCritical,
		CVSSScore:        9.8,
		Exploitable:      true,
		PublicExploit:    true,
		AssetCriticality: "high",
	}},
	1433: {"mssql", &models.VulnerabilityFinding{
		Title:            "SQL Server exposed",
		Description:      "Database listener reachable from the network",
		Severity:         models.SeverityHigh,
		CVSSScore:        8.2,
		Exploitable:      true,
		AssetCriticality: "high",
	}},
	3306: {"mysql", &models.VulnerabilityFinding{
		Title:            "MySQL exposed",
		Description:      "Database listener reachable from the network",
		Severity:         models.SeverityHigh,
		CVSSScore:        7.4,
		AssetCriticality: "high",
	}},
	3389: {"rdp", &models.VulnerabilityFinding{
		Title:            "RDP service exposed",
		Description:      "Remote desktop reachable; frequent brute-force target",
		Severity:         models.SeverityHigh,
		CVSSScore:        8.8,
		Exploitable:      true,
		PublicExploit:    true,
		AssetCriticality: "high",
	}},
	5900: {"vnc", &models.VulnerabilityFinding{
		Title:            "VNC service exposed",
		Description:      "Remote framebuffer access reachable from the network",
		Severity:         models.SeverityHigh,
		CVSSScore:        7.5,
		Exploitable:      true,
		AssetCriticality: "medium",
	}},
	8080: {"http-alt", &models.VulnerabilityFinding{
		Title:            "Alternate HTTP service exposed",
		Description:      "Secondary web service, often an unhardened admin console",
		Severity:         models.SeverityLow,
		CVSSScore:        3.7,
		AssetCriticality: "low",
	}},
}

// findingsForPorts maps open ports to vulnerability findings.
func findingsForPorts(open []int) []models.VulnerabilityFinding {
	findings := []models.VulnerabilityFinding{}
	for _, port := range open {
		profile, ok := serviceProfiles[port]
		if !ok || profile.Finding == nil {
			continue
		}
		f := *profile.Finding
		f.Port = port
		f.Service = profile.Service
		findings = append(findings, f)
	}
	return findings
}

func serviceName(port int) string {
	if profile, ok := serviceProfiles[port]; ok {
		return profile.Service
	}
	return "unknown"
}
