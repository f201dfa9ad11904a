package lookup

import "strings"

// ouiVendors maps the first three octets of a MAC address to its maker.
var ouiVendors = map[string]string{
	"00:0c:29": "VMware",
	"00:50:56": "VMware",
	"00:1a:11": "Google",
	"00:1c:42": "Parallels",
	"52:54:00": "QEMU/KVM",
	"00:15:5d": "Microsoft",

	"00:1e:c2": "Apple", "00:16:cb": "Apple", "00:17:f2": "Apple",
	"00:1f:5b": "Apple", "00:21:e9": "Apple", "00:22:41": "Apple",
	"00:23:12": "Apple", "00:23:32": "Apple", "00:25:00": "Apple",
	"00:26:08": "Apple", "00:26:b0": "Apple", "00:26:bb": "Apple",
	"00:30:65": "Apple", "00:3e:e1": "Apple", "00:0d:93": "Apple",
	"00:11:24": "Apple", "00:14:51": "Apple", "00:19:e3": "Apple",
	"00:1b:63": "Apple", "00:1c:b3": "Apple", "00:1d:4f": "Apple",
	"00:1e:52": "Apple", "00:1f:f3": "Apple",
}

// Vendor returns the manufacturer for a MAC address, or "" if unknown.
// Both ':' and '-' separated forms are accepted in any case.
func Vendor(mac string) string {
	mac = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(mac), "-", ":"))
	parts := strings.Split(mac, ":")
	if len(parts) < 3 {
		return ""
	}
	return ouiVendors[strings.Join(parts[:3], ":")]
}
