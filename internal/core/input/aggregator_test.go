package input

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nccgroup/scrying/internal/core/model"
)

const nmapXML = `<?xml version="1.0" encoding="UTF-8"?>
<nmaprun scanner="nmap">
  <host>
    <status state="up"/>
    <address addr="192.0.2.1" addrtype="ipv4"/>
    <address addr="00:11:22:33:44:55" addrtype="mac"/>
    <ports>
      <port protocol="tcp" portid="3389"><state state="open"/><service name="ms-wbt-server"/></port>
      <port protocol="tcp" portid="8443"><state state="open"/><service name="http" tunnel="ssl"/></port>
      <port protocol="tcp" portid="5901"><state state="open"/><service name="vnc-1"/></port>
      <port protocol="tcp" portid="22"><state state="open"/><service name="ssh"/></port>
      <port protocol="tcp" portid="80"><state state="closed"/><service name="http"/></port>
    </ports>
  </host>
  <host>
    <address addr="2001:db8::9" addrtype="ipv6"/>
    <ports>
      <port protocol="tcp" portid="3390"><state state="open"/><service name="ms-wbt-server"/></port>
    </ports>
  </host>
</nmaprun>`

const nessusXML = `<?xml version="1.0" ?>
<NessusClientData_v2>
  <Report name="scan">
    <ReportHost name="192.0.2.20">
      <HostProperties><tag name="host-ip">192.0.2.20</tag></HostProperties>
      <ReportItem port="0" svc_name="general" protocol="tcp" pluginID="19506"/>
      <ReportItem port="3389" svc_name="msrdp" protocol="tcp" pluginID="10940"/>
      <ReportItem port="3389" svc_name="msrdp" protocol="tcp" pluginID="57690"/>
      <ReportItem port="443" svc_name="www" protocol="tcp" pluginID="10107"/>
      <ReportItem port="5900" svc_name="vnc" protocol="tcp" pluginID="10342"/>
      <ReportItem port="161" svc_name="snmp" protocol="udp" pluginID="10550"/>
    </ReportHost>
  </Report>
</NessusClientData_v2>`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func urls(targets []model.Target) []string {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.URL())
	}
	return out
}

func TestAggregate_DedupAcrossSources(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "targets.txt", "# comment\n\n192.0.2.1:3389\nrdp://192.0.2.1\n")
	nmap := writeFile(t, dir, "scan.xml", nmapXML)

	agg := NewAggregator(Sources{
		Targets:   []string{"192.0.2.1"},
		Files:     []string{file},
		NmapFiles: []string{nmap},
	}, model.ModeAuto, nil)

	targets, err := agg.Aggregate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"rdp://192.0.2.1:3389",
		"https://192.0.2.1:8443/",
		"vnc://192.0.2.1:5901",
		"rdp://[2001:db8::9]:3390",
	}, urls(targets))

	// 第一次出现的来源被保留
	assert.Equal(t, model.SourceCLI, targets[0].Source)
	assert.Equal(t, model.SourceNmap, targets[1].Source)
	assert.Equal(t, map[model.Protocol]int{model.ProtocolRDP: 2, model.ProtocolWeb: 1, model.ProtocolVNC: 1}, agg.Summary())
}

func TestAggregate_EndToEndClassification(t *testing.T) {
	agg := NewAggregator(Sources{
		Targets: []string{"http://example.com", "rdp://192.0.2.1", "192.0.2.1"},
	}, model.ModeAuto, nil)

	targets, err := agg.Aggregate(context.Background())
	require.NoError(t, err)
	// 裸地址 auto 分类为 RDP:3389，与 rdp://192.0.2.1 合并为同一个作业
	assert.Equal(t, []string{"http://example.com/", "rdp://192.0.2.1:3389"}, urls(targets))
}

func TestAggregate_Nessus(t *testing.T) {
	nessus := writeFile(t, t.TempDir(), "scan.nessus", nessusXML)
	agg := NewAggregator(Sources{NessusFiles: []string{nessus}}, model.ModeAuto, nil)

	targets, err := agg.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"rdp://192.0.2.20:3389",
		"https://192.0.2.20/",
		"vnc://192.0.2.20:5900",
	}, urls(targets))
}

func TestAggregate_ModeFiltersScanRecords(t *testing.T) {
	nmap := writeFile(t, t.TempDir(), "scan.xml", nmapXML)
	agg := NewAggregator(Sources{NmapFiles: []string{nmap}}, model.ModeVNC, nil)

	targets, err := agg.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"vnc://192.0.2.1:5901"}, urls(targets))
}

func TestAggregate_WebPaths(t *testing.T) {
	agg := NewAggregator(Sources{
		Targets: []string{"http://example.com", "rdp://192.0.2.1", "http://example.com/admin"},
	}, model.ModeAuto, []string{"admin", "/login"})

	targets, err := agg.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"http://example.com/",
		"http://example.com/admin",
		"http://example.com/login",
		"rdp://192.0.2.1:3389",
	}, urls(targets))
}

func TestAggregate_NoTargets(t *testing.T) {
	dir := t.TempDir()
	broken := writeFile(t, dir, "broken.xml", "<nmaprun><host>")
	empty := writeFile(t, dir, "empty.txt", "# nothing here\n\n")

	agg := NewAggregator(Sources{
		Targets:     []string{"ftp://192.0.2.1", "not a host"},
		Files:       []string{empty, filepath.Join(dir, "missing.txt")},
		NmapFiles:   []string{broken},
		NessusFiles: []string{filepath.Join(dir, "missing.nessus")},
	}, model.ModeAuto, nil)

	targets, err := agg.Aggregate(context.Background())
	assert.Nil(t, targets)
	assert.True(t, errors.Is(err, ErrNoTargets))
	assert.Len(t, agg.SourceErrors(), 3)
	assert.Equal(t, 2, agg.ParseFailures())
}

func TestAggregate_BadSourceDoesNotAbortOthers(t *testing.T) {
	dir := t.TempDir()
	broken := writeFile(t, dir, "broken.xml", "not xml at all")
	agg := NewAggregator(Sources{
		Targets:   []string{"vnc://192.0.2.5"},
		NmapFiles: []string{broken},
	}, model.ModeAuto, nil)

	targets, err := agg.Aggregate(context.Background())
	require.NoError(t, err)
	require.Len(t, targets, 1)

	var serr *SourceError
	require.Len(t, agg.SourceErrors(), 1)
	require.True(t, errors.As(agg.SourceErrors()[0], &serr))
	assert.Equal(t, model.SourceNmap, serr.Source)
	assert.True(t, strings.Contains(serr.Error(), "broken.xml"))
}
