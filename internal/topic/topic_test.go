package topic

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		match  bool
	}{
		{"test/topic", "test/topic", true},
		{"test/topic", "test/other", false},

		{"test/+", "test/topic", true},
		{"test/+", "test/topic/sub", false},
		{"test/+/sub", "test/topic/sub", true},
		{"+/topic", "test/topic", true},
		{"+/+", "test/topic", true},

		{"test/#", "test/topic", true},
		{"test/#", "test/topic/sub/deep", true},
		{"test/#", "other/topic", false},
		{"#", "any/topic/here", true},
		{"test/topic/#", "test/topic", true},

		{"+/+/#", "test/topic/sub/deep", true},

		{"#", "$SYS/broker/uptime", false},
		{"+/uptime", "$SYS/uptime", false},
		{"$SYS/#", "$SYS/broker/uptime", true},

		{"a/+/b", "a//b", true},
		{"a/+/b", "a/x/b", true},

		{"", "", true},
		{"test", "test", true},
	}

	for _, tt := range tests {
		t.Run(tt.filter+"_vs_"+tt.topic, func(t *testing.T) {
			got := Match(tt.filter, tt.topic)
			if got != tt.match {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.match)
			}
		})
	}
}

func TestSplitShared(t *testing.T) {
	tests := []struct {
		filter    string
		group     string
		effective string
		ok        bool
	}{
		{"$share/consumers/a/b", "consumers", "a/b", true},
		{"a/b", "", "a/b", false},
		{"$share/onlygroup", "", "$share/onlygroup", false},
		{"$share//a/b", "", "a/b", true},
	}

	for _, tt := range tests {
		group, effective, ok := SplitShared(tt.filter)
		if group != tt.group || effective != tt.effective || ok != tt.ok {
			t.Errorf("SplitShared(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.filter, group, effective, ok, tt.group, tt.effective, tt.ok)
		}
	}
}

func TestValidateFilter(t *testing.T) {
	valid := []string{
		"a/b/c", "a/+/c", "a/#", "#", "+", "a//b",
		"$share/group1/a/b", "$share/group1/a/+",
	}
	for _, f := range valid {
		if err := ValidateFilter(f); err != nil {
			t.Errorf("ValidateFilter(%q) = %v, want nil", f, err)
		}
	}

	invalid := []string{
		"", "a/b#", "a/#/c", "a/b+", "$share//a/b", "$share/group1/",
	}
	for _, f := range invalid {
		if err := ValidateFilter(f); err == nil {
			t.Errorf("ValidateFilter(%q) = nil, want error", f)
		}
	}
}

func TestValidateTopicName(t *testing.T) {
	if err := ValidateTopicName("a/b/c"); err != nil {
		t.Errorf("ValidateTopicName(valid) = %v, want nil", err)
	}
	for _, topicName := range []string{"", "a/+/b", "a/#"} {
		if err := ValidateTopicName(topicName); err == nil {
			t.Errorf("ValidateTopicName(%q) = nil, want error", topicName)
		}
	}
}
