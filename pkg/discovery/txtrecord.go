package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodePublisherTXT creates the TXT records of a publisher.
func EncodePublisherTXT(info *PublisherInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	// Required fields
	txt[TXTKeyServer] = info.ServerName
	txt[TXTKeyHeartbeat] = info.HeartbeatEndpoint
	txt[TXTKeyVersion] = strconv.Itoa(info.ProtocolVersion)

	// Optional fields
	if info.HeartbeatTopic != "" {
		txt[TXTKeyTopic] = info.HeartbeatTopic
	}
	if info.EventEndpoint != "" {
		txt[TXTKeyEvent] = info.EventEndpoint
	}
	if info.EngineID != "" {
		txt[TXTKeyEngineID] = info.EngineID
	}
	return txt
}

// DecodePublisherTXT parses the TXT records of a publisher.
func DecodePublisherTXT(txt TXTRecordMap) (*PublisherInfo, error) {
	info := &PublisherInfo{}

	var ok bool
	if info.ServerName, ok = txt[TXTKeyServer]; !ok || info.ServerName == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyServer)
	}
	if info.HeartbeatEndpoint, ok = txt[TXTKeyHeartbeat]; !ok || info.HeartbeatEndpoint == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyHeartbeat)
	}

	pv, ok := txt[TXTKeyVersion]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}
	v, err := strconv.Atoi(pv)
	if err != nil || v < 0 {
		return nil, fmt.Errorf("%w: version %q", ErrInvalidTXTRecord, pv)
	}
	info.ProtocolVersion = v

	info.HeartbeatTopic = txt[TXTKeyTopic]
	info.EventEndpoint = txt[TXTKeyEvent]
	info.EngineID = txt[TXTKeyEngineID]
	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to a sorted slice of
// "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, _ := strings.Cut(s, "=")
		if k == "" {
			continue
		}
		txt[k] = v
	}
	return txt
}

// InstanceName returns the instance name of info, cut to the DNS label
// limit. Slashes in server names are replaced since some resolvers reject
// them.
func InstanceName(info *PublisherInfo) string {
	name := info.Instance
	if name == "" {
		name = strings.ReplaceAll(info.ServerName, "/", "-")
	}
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
