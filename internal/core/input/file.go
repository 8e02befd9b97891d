package input

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ReadTargetFile 读取目标文件，每行一个目标，忽略空行和 # 注释
func ReadTargetFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open target file: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return lines, fmt.Errorf("failed to read target file %s: %w", path, err)
	}
	return lines, nil
}
