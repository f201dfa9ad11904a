package lookup

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// readARPTable returns the system ARP cache as IP to upper-case MAC.
// An unreadable table yields an empty map.
func readARPTable(ctx context.Context) map[string]string {
	switch runtime.GOOS {
	case "linux":
		data, err := os.ReadFile("/proc/net/arp")
		if err != nil {
			return map[string]string{}
		}
		return parseProcARP(string(data))
	case "windows":
		return parseARPCommand(ctx, parseWindowsARP)
	default:
		return parseARPCommand(ctx, parseBSDARP)
	}
}

func parseARPCommand(ctx context.Context, parse func(string) map[string]string) map[string]string {
	out, err := exec.CommandContext(ctx, "arp", "-a").Output()
	if err != nil {
		return map[string]string{}
	}
	return parse(string(out))
}

// parseProcARP parses /proc/net/arp:
// IP address  HW type  Flags  HW address  Mask  Device
func parseProcARP(output string) map[string]string {
	table := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(output))
	sc.Scan()
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 {
			continue
		}
		mac := strings.ToUpper(fields[3])
		if mac == "00:00:00:00:00:00" {
			continue
		}
		table[fields[0]] = mac
	}
	return table
}

// parseWindowsARP parses `arp -a` lines like: 192.168.1.1  aa-bb-cc-dd-ee-ff  dynamic
func parseWindowsARP(output string) map[string]string {
	table := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		ip := fields[0]
		if ip[0] < '0' || ip[0] > '9' {
			continue
		}
		mac := strings.ToUpper(strings.ReplaceAll(fields[1], "-", ":"))
		if mac == "FF:FF:FF:FF:FF:FF" || mac == "00:00:00:00:00:00" {
			continue
		}
		table[ip] = mac
	}
	return table
}

// parseBSDARP parses macOS/BSD `arp -a` lines like:
// router.lan (192.168.1.1) at aa:bb:cc:dd:ee:ff on en0 ifscope [ethernet]
func parseBSDARP(output string) map[string]string {
	table := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := sc.Text()
		open := strings.Index(line, "(")
		closing := strings.Index(line, ")")
		if open < 0 || closing <= open {
			continue
		}
		ip := line[open+1 : closing]

		at := strings.Index(line[closing:], " at ")
		if at < 0 {
			continue
		}
		fields := strings.Fields(line[closing+at+4:])
		if len(fields) == 0 {
			continue
		}
		mac := strings.ToUpper(fields[0])
		if mac == "(INCOMPLETE)" || mac == "FF:FF:FF:FF:FF:FF" {
			continue
		}
		table[ip] = normalizeMAC(mac)
	}
	return table
}

// normalizeMAC zero-pads octets, since BSD arp prints 0:1c:42:... .
func normalizeMAC(mac string) string {
	parts := strings.Split(mac, ":")
	if len(parts) != 6 {
		return mac
	}
	for i, p := range parts {
		if len(p) == 1 {
			parts[i] = "0" + p
		}
	}
	return strings.Join(parts, ":")
}
