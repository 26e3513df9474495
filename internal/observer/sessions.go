package observer

import (
	"bufio"
	"context"
	"os/exec"
	"regexp"
	"strings"
)

// EnumerateSSH lists logins with a live sshd privilege-separated child
// process, grounded verbatim on
// original_source/src/utils/online_utils.rs's get_users: `ps aux | grep priv
// | grep Ss`, username at whitespace-split column index 11, skipping any
// value containing "-c".
func EnumerateSSH(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, "sh", "-c", "ps aux | grep priv | grep Ss").Output()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return nil, nil // grep found nothing
		}
		return nil, err
	}

	var logins []string
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "priv") {
			continue
		}
		cols := strings.Fields(line)
		if len(cols) < 12 {
			continue
		}
		username := strings.TrimSpace(cols[11])
		if username == "" || username == "root" || strings.Contains(username, "-c") {
			continue
		}
		logins = append(logins, username)
	}
	return logins, nil
}

var openvpnStatusLine = regexp.MustCompile(`^[a-zA-Z0-9_-]+,[0-9]+\.[0-9]+\.[0-9]+\.[0-9]+:[0-9]+`)

const openvpnStatusLog = "/etc/openvpn/openvpn-status.log"

// EnumerateOpenVPN parses the OpenVPN status log's client-list CSV lines
// (login,endpoint:port,...), grounded on online_utils.rs's grep -Eo
// invocation against openvpn-status.log.
func EnumerateOpenVPN(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, "grep", "-Eo", openvpnStatusLine.String(), openvpnStatusLog).Output()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return nil, nil // no match, or status log absent: openvpn not installed
		}
		return nil, nil // grep could not be started
	}

	var logins []string
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.Contains(line, "-c") {
			continue
		}
		login := strings.SplitN(line, ",", 2)[0]
		logins = append(logins, login)
	}
	return logins, nil
}
