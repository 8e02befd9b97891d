package input

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
)

// NessusData .nessus (v2) 导出文件根节点
type NessusData struct {
	XMLName xml.Name       `xml:"NessusClientData_v2"`
	Reports []NessusReport `xml:"Report"`
}

// NessusReport 报告
type NessusReport struct {
	Name  string       `xml:"name,attr"`
	Hosts []NessusHost `xml:"ReportHost"`
}

// NessusHost 主机，name 可能是 IP 也可能是主机名
type NessusHost struct {
	Name  string       `xml:"name,attr"`
	Items []NessusItem `xml:"ReportItem"`
}

// NessusItem 插件发现项
type NessusItem struct {
	Port     int    `xml:"port,attr"`
	SvcName  string `xml:"svc_name,attr"`
	Protocol string `xml:"protocol,attr"`
}

// ReadNessusFile 读取 nessus 文件
func ReadNessusFile(path string) ([]ServiceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open nessus file: %w", err)
	}
	defer f.Close()
	return ParseNessus(f)
}

// ParseNessus 解析 nessus XML，同一 host/port/service 的多个插件项只保留一条
func ParseNessus(r io.Reader) ([]ServiceRecord, error) {
	var data NessusData
	if err := xml.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse nessus xml: %w", err)
	}

	seen := make(map[ServiceRecord]bool)
	var records []ServiceRecord
	for _, report := range data.Reports {
		for _, host := range report.Hosts {
			for _, item := range host.Items {
				// port 0 是主机级别的插件结果
				if item.Port == 0 || (item.Protocol != "" && item.Protocol != "tcp") {
					continue
				}
				rec := ServiceRecord{Host: host.Name, Port: item.Port, Service: item.SvcName}
				if seen[rec] {
					continue
				}
				seen[rec] = true
				records = append(records, rec)
			}
		}
	}
	return records, nil
}
