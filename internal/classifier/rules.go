package classifier

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type rulesFile struct {
	NetdiskRules []Rule `yaml:"netdisk_rules"`
}

// DefaultRules covers the common netdisk providers and link schemes. A
// rules file replaces, not extends, this list.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: `pan\.baidu\.com`, Name: "baidu_pan"},
		{Pattern: `(alipan\.com|aliyundrive\.com)`, Name: "aliyun_pan"},
		{Pattern: `pan\.quark\.cn`, Name: "quark_pan"},
		{Pattern: `pan\.xunlei\.com`, Name: "xunlei_pan"},
		{Pattern: `cloud\.189\.cn`, Name: "tianyi_pan"},
		{Pattern: `caiyun\.139\.com`, Name: "mobile_pan"},
		{Pattern: `(115\.com|115cdn\.com|anxia\.com)`, Name: "115_pan"},
		{Pattern: `pan\.uc\.cn`, Name: "uc_pan"},
		{Pattern: `(weiyun\.com|share\.weiyun\.com)`, Name: "weiyun"},
		{Pattern: `lanzou[a-z]?\.com`, Name: "lanzou"},
		{Pattern: `(123pan\.com|123684\.com|123865\.com)`, Name: "123_pan"},
		{Pattern: `drive\.google\.com`, Name: "google_drive"},
		{Pattern: `^magnet:`, Name: "magnet"},
		{Pattern: `^ed2k://`, Name: "ed2k"},
		{Pattern: `^thunder://`, Name: "thunder"},
	}
}

// LoadRules reads the ordered provider rule list from a yaml file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	return f.NetdiskRules, nil
}
