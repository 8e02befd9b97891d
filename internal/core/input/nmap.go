package input

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
)

// NmapRun nmap -oX 输出的根节点
type NmapRun struct {
	XMLName xml.Name   `xml:"nmaprun"`
	Hosts   []NmapHost `xml:"host"`
}

// NmapHost 主机信息
type NmapHost struct {
	Addresses []NmapAddress `xml:"address"`
	Ports     []NmapPort    `xml:"ports>port"`
}

// NmapAddress 地址信息 (ipv4 / ipv6 / mac)
type NmapAddress struct {
	Addr     string `xml:"addr,attr"`
	AddrType string `xml:"addrtype,attr"`
}

// NmapPort 端口信息
type NmapPort struct {
	Protocol string        `xml:"protocol,attr"`
	PortID   int           `xml:"portid,attr"`
	State    NmapPortState `xml:"state"`
	Service  NmapService   `xml:"service"`
}

// NmapPortState 端口状态
type NmapPortState struct {
	State string `xml:"state,attr"`
}

// NmapService 服务信息
type NmapService struct {
	Name   string `xml:"name,attr"`
	Tunnel string `xml:"tunnel,attr"`
}

// ReadNmapFile 读取 nmap XML 文件
func ReadNmapFile(path string) ([]ServiceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open nmap file: %w", err)
	}
	defer f.Close()
	return ParseNmap(f)
}

// ParseNmap 解析 nmap XML，只返回 open 的 TCP 端口，MAC 地址跳过
func ParseNmap(r io.Reader) ([]ServiceRecord, error) {
	var run NmapRun
	if err := xml.NewDecoder(r).Decode(&run); err != nil {
		return nil, fmt.Errorf("failed to parse nmap xml: %w", err)
	}

	var records []ServiceRecord
	for _, host := range run.Hosts {
		for _, addr := range host.Addresses {
			if addr.AddrType != "ipv4" && addr.AddrType != "ipv6" {
				continue
			}
			for _, port := range host.Ports {
				if port.State.State != "open" {
					continue
				}
				if port.Protocol != "" && port.Protocol != "tcp" {
					continue
				}
				records = append(records, ServiceRecord{
					Host:    addr.Addr,
					Port:    port.PortID,
					Service: port.Service.Name,
					TLS:     strings.EqualFold(port.Service.Tunnel, "ssl"),
				})
			}
		}
	}
	return records, nil
}
