package kube

import (
	"context"
	"fmt"
	"strings"

	certsv1 "k8s.io/api/certificates/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// kubeletServingSigner issues kubelet serving certificates; those requests
// stay pending until an operator approves them.
const kubeletServingSigner = "kubernetes.io/kubelet-serving"

// ApproveServingCSRs approves every pending kubelet-serving certificate
// signing request whose requestor matches the substring. Zero pending
// requests is a normal outcome, not an error: request objects may not exist
// yet right after a node joins.
func (c *Client) ApproveServingCSRs(ctx context.Context, requestorSubstring string) (int, error) {
	list, err := c.clientset.CertificatesV1().CertificateSigningRequests().List(ctx, metav1.ListOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to list certificate signing requests: %w", err)
	}

	approved := 0
	for i := range list.Items {
		csr := &list.Items[i]
		if csr.Spec.SignerName != kubeletServingSigner {
			continue
		}
		if requestorSubstring != "" && !strings.Contains(csr.Spec.Username, requestorSubstring) {
			continue
		}
		if isResolved(csr) {
			continue
		}

		csr.Status.Conditions = append(csr.Status.Conditions, certsv1.CertificateSigningRequestCondition{
			Type:    certsv1.CertificateApproved,
			Status:  "True",
			Reason:  "OperatorApproved",
			Message: "approved by cpc bootstrap",
		})
		if _, err := c.clientset.CertificatesV1().CertificateSigningRequests().UpdateApproval(ctx, csr.Name, csr, metav1.UpdateOptions{}); err != nil {
			return approved, fmt.Errorf("failed to approve CSR %s: %w", csr.Name, err)
		}
		approved++
	}
	return approved, nil
}

func isResolved(csr *certsv1.CertificateSigningRequest) bool {
	for _, cond := range csr.Status.Conditions {
		if cond.Type == certsv1.CertificateApproved || cond.Type == certsv1.CertificateDenied {
			return true
		}
	}
	return false
}
