package received

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScan(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  Components
	}{
		{
			name:  "by and for",
			value: "by 2002:a4a:d031:0:0:0:0:0 with SMTP id w17csp2701290oor for anotherdummy@test.com",
			want: Components{
				By:  "by 2002:a4a:d031:0:0:0:0:0 with SMTP id w17csp2701290oor",
				For: "for anotherdummy@test.com",
			},
		},
		{
			name:  "from and by",
			value: "from also.made.up ([10.0.0.4]) by fuzzy.fake.com Fuzzy Corp with SMTP id 3gJek488nka743gKRkR2nY",
			want: Components{
				From: "from also.made.up ([10.0.0.4])",
				By:   "by fuzzy.fake.com Fuzzy Corp with SMTP id 3gJek488nka743gKRkR2nY",
			},
		},
		{
			name:  "leading parenthesized from",
			value: "(from root@localhost) by still.dodgy.host.com (8.14.7/8.14.7/Submit) id 05QDRrso001911",
			want: Components{
				From: "(from root@localhost)",
				By:   "by still.dodgy.host.com (8.14.7/8.14.7/Submit) id 05QDRrso001911",
			},
		},
		{
			name:  "from only",
			value: "from still.not.real.com (another.dodgy.host.com. 10.0.0.6)",
			want:  Components{From: "from still.not.real.com (another.dodgy.host.com. 10.0.0.6)"},
		},
		{
			name:  "marker inside parentheses",
			value: "by probably.spam.sender (Postfix, from userid 0)\n id 095A71BA8",
			want:  Components{By: "by probably.spam.sender (Postfix, from userid 0) id 095A71BA8"},
		},
		{
			name:  "trailing tls after for",
			value: "from probably.not.real.com ([10.0.0.3]) by mx.google.com with ESMTPS id u23si16237783eds.526.2020.06.26.06.27.53 for <mannequin@test.com> (version=TLS1_2 cipher=ECDHE-ECDSA-AES128-GCM-SHA256 bits=128/128)",
			want: Components{
				From:     "from probably.not.real.com ([10.0.0.3])",
				By:       "by mx.google.com with ESMTPS id u23si16237783eds.526.2020.06.26.06.27.53",
				For:      "for <mannequin@test.com>",
				StartTLS: "(version=TLS1_2 cipher=ECDHE-ECDSA-AES128-GCM-SHA256 bits=128/128)",
			},
		},
		{
			name:  "trailing tls without for",
			value: "from a.example ([1.2.3.4]) by mx.google.com with ESMTPS id xyz.1 (version=TLS1_2 cipher=ECDHE-ECDSA-AES128-GCM-SHA256 bits=128/128)",
			want: Components{
				From:     "from a.example ([1.2.3.4])",
				By:       "by mx.google.com with ESMTPS id xyz.1",
				StartTLS: "(version=TLS1_2 cipher=ECDHE-ECDSA-AES128-GCM-SHA256 bits=128/128)",
			},
		},
		{
			name:  "text after id stays in by",
			value: "by relay.test with SMTP id 1 via Submission",
			want:  Components{By: "by relay.test with SMTP id 1 via Submission"},
		},
		{
			name:  "tls between from and by",
			value: "from not.real.com (unknown [10.0.0.1]) (using TLSv1.2 with cipher ECDHE-RSA-AES256-GCM-SHA384 (256/256 bits)) (No client certificate requested) by foo.bar (Postfix) with ESMTPS id 51B365400F for <dummy@test.com>",
			want: Components{
				From: "from not.real.com (unknown [10.0.0.1]) (using TLSv1.2 with cipher ECDHE-RSA-AES256-GCM-SHA384 (256/256 bits)) (No client certificate requested)",
				By:   "by foo.bar (Postfix) with ESMTPS id 51B365400F",
				For:  "for <dummy@test.com>",
			},
		},
		{
			name:  "internal routing",
			value: "from root by spam.test.zzz with local-generated (Exim 4.92) (envelope-from <is.this.real.zzz>) id 1kIXad-0006OQ-VE for dummy@test.com",
			want: Components{
				From: "from root",
				By:   "by spam.test.zzz with local-generated (Exim 4.92) (envelope-from <is.this.real.zzz>) id 1kIXad-0006OQ-VE",
				For:  "for dummy@test.com",
			},
		},
		{
			name:  "exchange frontend transport",
			value: "from probably.not.real (10.0.0.1) by recipient.zzz (10.10.10.10) with Microsoft SMTP Server (version=TLS1_2, cipher=TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384) id 1.2.3.4 via Frontend Transport",
			want: Components{
				From:     "from probably.not.real (10.0.0.1)",
				By:       "by recipient.zzz (10.10.10.10) with Microsoft SMTP Server (version=TLS1_2, cipher=TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384) id 1.2.3.4 via Frontend Transport",
				StartTLS: "(version=TLS1_2, cipher=TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384)",
			},
		},
		{
			name:  "spaced angle mailbox",
			value: "from localhost (127.0.0.1) by recipient.zzz id SSP82XUF8U4ERPFZGJN4K1M20 for < victim@test.com >",
			want: Components{
				From: "from localhost (127.0.0.1)",
				By:   "by recipient.zzz id SSP82XUF8U4ERPFZGJN4K1M20",
				For:  "for < victim@test.com >",
			},
		},
		{
			name:  "from blocked once by started",
			value: "from mail.test by relay.test with SMTP id 1 from other.test",
			want: Components{
				From: "from mail.test",
				By:   "by relay.test with SMTP id 1 from other.test",
			},
		},
		{
			name:  "by blocked once for started",
			value: "by relay.test for <a@test.com> by other.test",
			want: Components{
				By:       "by relay.test",
				For:      "for <a@test.com>",
				StartTLS: "by other.test",
			},
		},
		{
			name:  "repeated marker stays in component",
			value: "from a.test from b.test by c.test",
			want: Components{
				From: "from a.test from b.test",
				By:   "by c.test",
			},
		},
		{
			name:  "no markers",
			value: "(qmail 1234 invoked by uid 89)",
			want:  Components{StartTLS: "(qmail 1234 invoked by uid 89)"},
		},
		{
			name:  "empty",
			value: "",
			want:  Components{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Scan(tt.value))
		})
	}
}

func TestSplitTimestamp(t *testing.T) {
	tests := []struct {
		header string
		value  string
		stamp  string
	}{
		{"by a.test; Sat, 25 Apr 2020 22:14:04 -0700", "by a.test", " Sat, 25 Apr 2020 22:14:04 -0700"},
		{"by a.test", "by a.test", ""},
		{"by a.test (x; y) id 1; 10 Sep 2020 08:55:25 +1000", "by a.test (x; y) id 1", " 10 Sep 2020 08:55:25 +1000"},
		{"by a.test; 10 Sep 2020 08:55:25 +1000 (envelope-from <a;b>)", "by a.test", " 10 Sep 2020 08:55:25 +1000 (envelope-from <a;b>)"},
	}
	for _, tt := range tests {
		value, stamp := splitTimestamp(tt.header)
		assert.Equal(t, tt.value, value, tt.header)
		assert.Equal(t, tt.stamp, stamp, tt.header)
	}
}
