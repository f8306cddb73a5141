package takeover

import "strings"

// Fingerprint identifies a hosting service whose unclaimed resources
// answer a dangling CNAME. VerifyURL may contain {cname}, replaced with
// the canonical CNAME target.
type Fingerprint struct {
	CNAMESubstring   string
	Service          string
	RequiresNXDOMAIN bool
	VerifyURL        string
	ExpectedStatus   int
	BodyMarker       string
}

func (f Fingerprint) URL(cname string) string {
	return strings.ReplaceAll(f.VerifyURL, "{cname}", cname)
}

// Fingerprints is matched in order and the first hit wins, so more
// specific patterns must come before broader ones.
var Fingerprints = []Fingerprint{
	{
		CNAMESubstring:   "github.io",
		Service:          "GitHub Pages",
		RequiresNXDOMAIN: true,
		VerifyURL:        "https://{cname}",
		ExpectedStatus:   404,
	},
	{
		CNAMESubstring:   "amazonaws.com",
		Service:          "AWS/S3",
		RequiresNXDOMAIN: true,
		VerifyURL:        "http://{cname}",
		ExpectedStatus:   404,
	},
	{
		CNAMESubstring:   "azure.net",
		Service:          "Azure",
		RequiresNXDOMAIN: true,
		VerifyURL:        "https://{cname}",
		ExpectedStatus:   404,
	},
	{
		CNAMESubstring:   "cloudfront.net",
		Service:          "CloudFront",
		RequiresNXDOMAIN: true,
		VerifyURL:        "http://{cname}",
		ExpectedStatus:   404,
	},
	{
		CNAMESubstring:   "herokuapp.com",
		Service:          "Heroku",
		RequiresNXDOMAIN: true,
		VerifyURL:        "https://{cname}",
		ExpectedStatus:   404,
	},
	{
		CNAMESubstring:   "oss-cn-",
		Service:          "Aliyun OSS",
		RequiresNXDOMAIN: true,
		VerifyURL:        "http://{cname}",
		ExpectedStatus:   404,
		BodyMarker:       "The specified bucket does not exist",
	},
	{
		CNAMESubstring:   "oss.aliyuncs.com",
		Service:          "Aliyun OSS",
		RequiresNXDOMAIN: true,
		VerifyURL:        "http://{cname}",
		ExpectedStatus:   404,
		BodyMarker:       "The specified bucket does not exist",
	},
	{
		CNAMESubstring:   "cos.ap-",
		Service:          "Tencent COS",
		RequiresNXDOMAIN: true,
		VerifyURL:        "http://{cname}",
		ExpectedStatus:   404,
		BodyMarker:       "NoSuchBucket",
	},
	{
		CNAMESubstring:   "cos.accelerate.myqcloud.com",
		Service:          "Tencent COS",
		RequiresNXDOMAIN: true,
		VerifyURL:        "http://{cname}",
		ExpectedStatus:   404,
		BodyMarker:       "NoSuchBucket",
	},
	{
		CNAMESubstring:   "file.myqcloud.com",
		Service:          "Tencent COS",
		RequiresNXDOMAIN: true,
		VerifyURL:        "http://{cname}",
		ExpectedStatus:   404,
		BodyMarker:       "NoSuchBucket",
	},
}

// Match returns the first fingerprint whose pattern occurs in cname,
// ignoring case.
func Match(table []Fingerprint, cname string) (Fingerprint, bool) {
	cname = strings.ToLower(cname)
	for _, fp := range table {
		if strings.Contains(cname, strings.ToLower(fp.CNAMESubstring)) {
			return fp, true
		}
	}
	return Fingerprint{}, false
}
